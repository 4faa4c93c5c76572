package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"net/http"
	"net/url"

	"github.com/observekit/api-monitor-service/clients/database"
)

const (
	MonitorDataPath        = "/monitor/data"
	MonitorStatisticsPath  = "/monitor/statistics"
	MonitorPerformancePath = "/monitor/performance"
	MonitorRealtimePath    = "/monitor/realtime"
	MonitorAlertsPath      = "/monitor/alerts"
)

// MonitorServiceClient provides a client
// for making requests and decoding responses
// to the monitor service API
type MonitorServiceClient struct {
	*http.Client
	config            MonitorServiceClientConfig
	DebugLogResponses bool
}

// MonitorServiceClientConfig wraps values used to
// create a new MonitorServiceClient
type MonitorServiceClientConfig struct {
	MonitorServiceHostname string
	DebugLogResponses      bool
}

// NewMonitorServiceClient creates a new MonitorServiceClient
// using the provided config, returning the client and error (if any)
func NewMonitorServiceClient(config MonitorServiceClientConfig) (*MonitorServiceClient, error) {
	httpClient := &http.Client{}
	return &MonitorServiceClient{
		Client:            httpClient,
		DebugLogResponses: config.DebugLogResponses,
		config:            config,
	}, nil
}

// GetMonitorData calls `MonitorDataPath` with the provided query
// parameters to get a filtered page of daily endpoint stats
func (c *MonitorServiceClient) GetMonitorData(ctx context.Context, params url.Values) (MonitorDataResponse, error) {
	var response MonitorDataResponse
	requestURL := c.config.MonitorServiceHostname + MonitorDataPath
	if encoded := params.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	request, err := CreateRequest(http.MethodGet, requestURL, nil)

	if err != nil {
		return response, err
	}

	err = Call(*c, request, &response)

	return response, err
}

// GetStatistics calls `MonitorStatisticsPath` to get the
// statistics summary over the requested day window
func (c *MonitorServiceClient) GetStatistics(ctx context.Context, days int) (StatisticsSummary, error) {
	var response StatisticsSummary
	requestURL := c.config.MonitorServiceHostname + MonitorStatisticsPath
	if days > 0 {
		requestURL += "?days=" + strconv.Itoa(days)
	}

	request, err := CreateRequest(http.MethodGet, requestURL, nil)

	if err != nil {
		return response, err
	}

	err = Call(*c, request, &response)

	return response, err
}

// GetPerformanceTrend calls `MonitorPerformancePath` to get the
// response time trend for the requested query
func (c *MonitorServiceClient) GetPerformanceTrend(ctx context.Context, query PerformanceQuery) (PerformanceTrend, error) {
	var response PerformanceTrend
	params := url.Values{}
	if query.Days > 0 {
		params.Set("days", strconv.Itoa(query.Days))
	}
	if query.Format != "" {
		params.Set("format", query.Format)
	}
	if query.Detailed {
		params.Set("detailed", "true")
	}
	if len(query.Paths) > 0 {
		params.Set("paths", strings.Join(query.Paths, ","))
	}

	requestURL := c.config.MonitorServiceHostname + MonitorPerformancePath
	if encoded := params.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	request, err := CreateRequest(http.MethodGet, requestURL, nil)

	if err != nil {
		return response, err
	}

	err = Call(*c, request, &response)

	return response, err
}

// GetRealtimeSnapshot calls `MonitorRealtimePath` to get the
// realtime traffic view
func (c *MonitorServiceClient) GetRealtimeSnapshot(ctx context.Context) (RealtimeSnapshot, error) {
	var response RealtimeSnapshot
	requestURL := c.config.MonitorServiceHostname + MonitorRealtimePath

	request, err := CreateRequest(http.MethodGet, requestURL, nil)

	if err != nil {
		return response, err
	}

	err = Call(*c, request, &response)

	return response, err
}

// CreateAlertConfig calls `MonitorAlertsPath` to create a new
// alert config, returning the created config
func (c *MonitorServiceClient) CreateAlertConfig(ctx context.Context, alertConfig AlertConfigRequest) (database.AlertConfig, error) {
	var response database.AlertConfig
	requestURL := c.config.MonitorServiceHostname + MonitorAlertsPath

	request, err := CreateRequest(http.MethodPost, requestURL, alertConfig)

	if err != nil {
		return response, err
	}

	err = Call(*c, request, &response)

	return response, err
}

// RequestError provides additional details about the failed request.
type RequestError struct {
	message    string
	URL        string
	StatusCode int
}

// Error implements the error interface for RequestError.
func (err *RequestError) Error() string {
	return err.message
}

// NewError creates a new RequestError
func NewError(message, url string, statusCode int) error {
	return &RequestError{message, url, statusCode}
}

// CreateRequest isolates duplicate code in creating http search request.
func CreateRequest(method string, path string, params interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	var req *http.Request
	err := json.NewEncoder(&buf).Encode(&params)
	if err != nil {
		return req, err
	}
	req, err = http.NewRequest(method, path, &buf)
	if err != nil {
		return req, &RequestError{
			URL:     path,
			message: err.Error(),
		}
	}
	return req, nil
}

// Call makes an http request to a JSON HTTP api
// decoding the JSON response to the result interface if non-nil
// returning error (if any)
func Call(client MonitorServiceClient, request *http.Request, result interface{}) error {
	response, err := client.Do(request)

	if err != nil {
		return &RequestError{
			URL:     request.URL.String(),
			message: err.Error(),
		}
	}

	defer response.Body.Close()

	if !(response.StatusCode >= 200 && response.StatusCode <= 299) {
		requestURL := request.URL.String()
		return &RequestError{
			StatusCode: response.StatusCode,
			URL:        requestURL,
			message:    fmt.Sprintf("request to %s error server http error %d", requestURL, response.StatusCode),
		}
	}

	// If no result is expected, don't attempt to decode a potentially
	// empty response stream and avoid incurring EOF errors
	if result == nil {
		return nil
	}
	// Check if debug is on
	if client.DebugLogResponses {
		var bodyBytes []byte
		if response.Body != nil {
			bodyBytes, err = io.ReadAll(response.Body)
			if err != nil {
				return &RequestError{
					URL:     request.URL.String(),
					message: err.Error(),
				}
			}
			fmt.Printf("Request Path %s \n Response Body %s \n  Response Status Code %d \n ", request.URL, string(bodyBytes), response.StatusCode)

		}
		// Repopulate body with the data read
		response.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}
	err = json.NewDecoder(response.Body).Decode(&result)
	if err != nil {
		return &RequestError{
			URL:     request.URL.String(),
			message: err.Error(),
		}
	}
	return nil
}
