package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber builds the human-readable number: ORD-<unix ms>-<4 hex>.
// The millisecond timestamp keeps numbers roughly sortable by creation
// time; the suffix guards two orders landing on the same tick.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}
