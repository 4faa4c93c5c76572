package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	AlertConfigsTableName = "alert_configs"
)

// ListMatchingAlertConfigs returns the enabled alert configs that apply
// to the provided path, including global rules with no path set
func (c *Client) ListMatchingAlertConfigs(ctx context.Context, path string) ([]database.AlertConfig, error) {
	var configs []AlertConfig

	err := c.db.NewSelect().
		Model(&configs).
		Where("enabled = TRUE").
		Where("path IS NULL OR path = ?", path).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return convertAlertConfigs(configs), nil
}

// ListAlertConfigs returns every alert config ordered by id
func (c *Client) ListAlertConfigs(ctx context.Context) ([]database.AlertConfig, error) {
	var configs []AlertConfig

	err := c.db.NewSelect().Model(&configs).Order("id ASC").Scan(ctx)

	if err != nil {
		return nil, err
	}

	return convertAlertConfigs(configs), nil
}

// GetAlertConfig returns the alert config with the provided id,
// or database.ErrNotFound if no such config exists
func (c *Client) GetAlertConfig(ctx context.Context, id int64) (*database.AlertConfig, error) {
	var config AlertConfig

	err := c.db.NewSelect().Model(&config).Where("id = ?", id).Scan(ctx)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	converted := config.ToAlertConfig()

	return &converted, nil
}

// CreateAlertConfig inserts a new alert config, populating the id and
// timestamps of the provided config
func (c *Client) CreateAlertConfig(ctx context.Context, config *database.AlertConfig) error {
	now := time.Now().UTC()
	config.CreatedAt = now
	config.UpdatedAt = now

	model := convertAlertConfig(config)
	model.ID = 0

	_, err := c.db.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return err
	}

	config.ID = model.ID

	return nil
}

// UpdateAlertConfig updates an existing alert config,
// returning database.ErrNotFound if no such config exists
func (c *Client) UpdateAlertConfig(ctx context.Context, config *database.AlertConfig) error {
	config.UpdatedAt = time.Now().UTC()

	model := convertAlertConfig(config)

	result, err := c.db.NewUpdate().Model(model).WherePK().Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}

	return nil
}

// DeleteAlertConfig deletes the alert config with the provided id,
// returning database.ErrNotFound if no such config exists
func (c *Client) DeleteAlertConfig(ctx context.Context, id int64) error {
	result, err := c.db.NewDelete().Model((*AlertConfig)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return database.ErrNotFound
	}

	return nil
}

func convertAlertConfigs(configs []AlertConfig) []database.AlertConfig {
	converted := make([]database.AlertConfig, 0, len(configs))
	for _, config := range configs {
		converted = append(converted, config.ToAlertConfig())
	}
	return converted
}
