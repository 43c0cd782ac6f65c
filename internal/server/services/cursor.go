package services

import (
	"strings"
	"time"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/server/models"
)

// The change feed cursor is derived data: the (updated, id) sort key of the
// last row served, encoded as "<RFC3339Nano>_<id>". No pagination state is
// held server-side; decoding the token is all that is needed to resume.
const cursorTimeLayout = time.RFC3339Nano

func encodeCursor(c models.Cursor) string {
	return c.Updated.UTC().Format(cursorTimeLayout) + "_" + c.ID
}

// decodeCursor parses a client-supplied cursor. Structurally invalid tokens
// yield common.ErrInvalidCursor; they must be rejected rather than ignored,
// since ignoring one would restart pagination from the beginning.
func decodeCursor(s string) (*models.Cursor, error) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return nil, common.ErrInvalidCursor
	}
	ts, err := time.Parse(cursorTimeLayout, parts[0])
	if err != nil {
		return nil, common.ErrInvalidCursor
	}
	return &models.Cursor{Updated: ts, ID: parts[1]}, nil
}
