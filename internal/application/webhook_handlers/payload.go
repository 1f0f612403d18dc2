package webhook_handlers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"merchant-connect-layer/internal/domain"
)

// resourceData returns the resource object of a delivery. Salla wraps it in
// "data"; zid and the generic provider send it at the top level.
func resourceData(event *domain.WebhookEvent) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(event.Payload))
	dec.UseNumber()

	var root map[string]interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse %s webhook payload: %w", event.Event, err)
	}
	if data, ok := root["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return root, nil
}

// field returns the first present key rendered as a string
func field(data map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case bool:
			return fmt.Sprint(v)
		case map[string]interface{}:
			// salla nests amounts and statuses, e.g. {"amount": 10, "currency": "SAR"}
			if s := field(v, "amount", "name", "slug", "code"); s != "" {
				return s
			}
		}
	}
	return ""
}

func eventSet(events ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(events))
	for _, e := range events {
		set[e] = struct{}{}
	}
	return set
}
