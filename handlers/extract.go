package handlers

import "encoding/json"

// The render provider's webhook payload has drifted over time, so both the
// asset URL and the correlation key arrive under several legacy aliases.
// Each alias is an extractor tried in declared order; the first hit wins,
// keeping the precedence auditable.

type extractor func(payload map[string]interface{}) (string, bool)

var assetURLExtractors = []extractor{
	stringField("image_url"),
	stringField("storage_path"),
	stringField("url"),
}

var sessionExtractors = []extractor{
	stringField("session_id"),
	stringField("sessionId"),
	metaSessionID,
	passthroughSessionID,
}

func stringField(key string) extractor {
	return func(payload map[string]interface{}) (string, bool) {
		if v, ok := payload[key].(string); ok && v != "" {
			return v, true
		}
		return "", false
	}
}

func metaSessionID(payload map[string]interface{}) (string, bool) {
	meta, ok := payload["meta"].(map[string]interface{})
	if !ok {
		return "", false
	}
	if v, ok := meta["session_id"].(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// passthroughSessionID best-effort decodes the passthrough token: a JSON
// object carrying a session field, a JSON string, or an opaque raw value that
// is taken to be the session id itself.
func passthroughSessionID(payload map[string]interface{}) (string, bool) {
	raw, ok := payload["passthrough"].(string)
	if !ok || raw == "" {
		return "", false
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		// Not JSON at all: the raw value is the session id.
		return raw, true
	}

	switch v := decoded.(type) {
	case map[string]interface{}:
		if s, ok := v["session_id"].(string); ok && s != "" {
			return s, true
		}
		if s, ok := v["sessionId"].(string); ok && s != "" {
			return s, true
		}
		return "", false
	case string:
		if v != "" {
			return v, true
		}
		return "", false
	default:
		return raw, true
	}
}

func resolveAssetURL(payload map[string]interface{}) (string, bool) {
	return firstMatch(assetURLExtractors, payload)
}

func resolveSessionID(payload map[string]interface{}) (string, bool) {
	return firstMatch(sessionExtractors, payload)
}

func firstMatch(extractors []extractor, payload map[string]interface{}) (string, bool) {
	for _, extract := range extractors {
		if v, ok := extract(payload); ok {
			return v, true
		}
	}
	return "", false
}
