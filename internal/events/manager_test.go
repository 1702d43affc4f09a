package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEmitWritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.New(&buf))

	m.Emit(TradesExecuted, "trading", map[string]interface{}{"trades": 3})

	out := buf.String()
	assert.Contains(t, out, string(TradesExecuted))
	assert.Contains(t, out, `"module":"trading"`)
	assert.Contains(t, out, `"trades":3`)
}

func TestEmitErrorCarriesErrorAndContext(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(zerolog.New(&buf))

	m.EmitError("trading", errors.New("ledger write failed"), map[string]interface{}{
		"batch_id": "abc",
	})

	out := buf.String()
	assert.Contains(t, out, string(ErrorOccurred))
	assert.Contains(t, out, "ledger write failed")
	assert.Contains(t, out, `"batch_id":"abc"`)
}
