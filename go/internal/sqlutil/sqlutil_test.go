package sqlutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNullConversions(t *testing.T) {
	if ToSqlString("").Valid || !ToSqlString("x").Valid {
		t.Fatal("ToSqlString validity")
	}
	if ToNullUUID(uuid.Nil).Valid {
		t.Fatal("nil uuid should be NULL")
	}
	id := uuid.New()
	if got := ToNullUUID(id); !got.Valid || got.UUID != id {
		t.Fatalf("ToNullUUID = %+v, want %v", got, id)
	}
	if ToSqlTime(nil).Valid {
		t.Fatal("nil time should be NULL")
	}
	now := time.Now()
	if got := ToSqlTime(&now); !got.Valid || !got.Time.Equal(now) {
		t.Fatalf("ToSqlTime = %+v", got)
	}
	if ToNullRawMessage(nil).Valid || !ToNullRawMessage(json.RawMessage(`1`)).Valid {
		t.Fatal("ToNullRawMessage validity")
	}
}
