package utils

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// MarshalTask builds an asynq task with a JSON payload
func MarshalTask(taskType string, payload interface{}) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, body), nil
}

// UnmarshalTask decodes the JSON payload of t into dest
func UnmarshalTask(t *asynq.Task, dest interface{}) error {
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// orderNumberAlphabet skips 0/O and 1/I
const orderNumberAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateOrderNumber returns a human-readable number like FO-20250131-7KQ2MX.
// Uniqueness is enforced by the orders.order_number constraint.
func GenerateOrderNumber(now time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}

	var sb strings.Builder
	for _, b := range buf {
		sb.WriteByte(orderNumberAlphabet[int(b)%len(orderNumberAlphabet)])
	}

	return fmt.Sprintf("FO-%s-%s", now.UTC().Format("20060102"), sb.String())
}
