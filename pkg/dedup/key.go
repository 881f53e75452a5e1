package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key derives the deduplication key for a request. When hashMessages is set
// only the identity-bearing fields participate; otherwise the whole request
// body is hashed. encoding/json sorts map keys, so the hash is stable for
// equal content.
func Key(request map[string]any, hashMessages bool) string {
	var subject any = request
	if hashMessages {
		subject = map[string]any{
			"messages":   request["messages"],
			"model":      request["model"],
			"max_tokens": request["max_tokens"],
		}
	}

	data, err := json.Marshal(subject)
	if err != nil {
		// Unmarshalable content cannot collide with real keys.
		data = []byte(fmt.Sprintf("%#v", subject))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
