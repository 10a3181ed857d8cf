package safe

import (
	"context"
	"encoding/json"
	"io"

	"github.com/secmon-lab/medic/pkg/utils/logging"
)

func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", logging.ErrAttr(err))
	}
}

func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("Failed to write", logging.ErrAttr(err))
	}
}

// EncodeJSON writes v as JSON; a failure is logged because headers are already sent.
func EncodeJSON(ctx context.Context, w io.Writer, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(ctx).Error("Failed to encode JSON", logging.ErrAttr(err))
	}
}
