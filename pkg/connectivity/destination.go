package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/codec"
	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

const (
	destinationPath = "/destination-configuration/v1/destinations/"

	// maxResponseBodySize bounds reads of destination service replies (1 MB).
	maxResponseBodySize = 1 << 20

	// maxErrorPreview bounds how much of an error body ends up in messages.
	maxErrorPreview = 256
)

// UnmarshalJSON decodes the typed fields and keeps the full block in Properties.
func (c *Configuration) UnmarshalJSON(data []byte) error {
	type plain Configuration
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	props := map[string]any{}
	if err := json.Unmarshal(data, &props); err != nil {
		return err
	}
	*c = Configuration(p)
	c.Properties = props
	return nil
}

// MarshalJSON writes Properties back out, with the typed fields on top.
func (c Configuration) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Properties)+5)
	for k, v := range c.Properties {
		out[k] = v
	}
	out["Name"] = c.Name
	out["Type"] = c.Type
	out["URL"] = c.URL
	out["Authentication"] = c.Authentication
	out["ProxyType"] = c.ProxyType
	return json.Marshal(out)
}

// lookupDestination fetches the named destination with a destination token.
func (c *Client) lookupDestination(ctx context.Context, creds xsenv.Credentials, name, token, userToken string) (*Destination, error) {
	op := string(StepDestinationLookup)
	base := creds.Endpoint()
	if base == "" {
		return nil, stepError(ErrConfiguration, op, errors.New("destination service binding has no uri"))
	}
	target := strings.TrimRight(base, "/") + destinationPath + url.PathEscape(name)

	var dest *Destination
	err := c.timed(ctx, StepDestinationLookup, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if userToken != "" {
			req.Header.Set(HeaderUserToken, userToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{StatusCode: resp.StatusCode, URL: target, Message: preview(body)}
		}

		var d Destination
		if err := codec.JSON.Unmarshal(body, &d); err != nil {
			return err
		}
		dest = &d
		return nil
	})
	if err != nil {
		return nil, stepError(ErrDestinationLookup, op, err)
	}

	c.log.Debug("destination resolved",
		zap.String("destination", name),
		zap.String("url", dest.Configuration.URL),
		zap.String("authentication", dest.Configuration.Authentication),
		zap.Int("authTokens", len(dest.AuthTokens)),
	)
	return dest, nil
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorPreview {
		s = s[:maxErrorPreview] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
