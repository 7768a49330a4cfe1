package indexclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// notificationSchemaJSON describes one push message.
const notificationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://realmsync.local/schemas/notification.json",
  "type": "object",
  "required": ["entity_id", "changed_components"],
  "additionalProperties": false,
  "properties": {
    "entity_id": {"type": "string", "minLength": 1},
    "changed_components": {
      "type": "array",
      "minItems": 1,
      "uniqueItems": true,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

var notificationSchema = jsonschema.MustCompileString("notification.json", notificationSchemaJSON)

// DecodeNotification validates a raw push message and decodes it.
func DecodeNotification(data []byte) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if err := notificationSchema.Validate(doc); err != nil {
		return Notification{}, fmt.Errorf("invalid notification: %w", err)
	}

	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}
