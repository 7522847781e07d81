package kafka

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-archive/internal/domain"
)

func TestSerializeNotice(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	notice := MappedEventNotice{
		EventID:  801234,
		Product:  "Hail",
		Start:    now.Add(-time.Hour),
		End:      now.Add(-30 * time.Minute),
		County:   "LLANO",
		NcFiles:  []string{"hail/20240426/COMPOSITE_20240426-141000.nc"},
		MappedAt: now,
	}

	msg, err := serializeNotice(notice)
	require.NoError(t, err)

	assert.Equal(t, []byte("801234"), msg.Key)
	assert.Contains(t, string(msg.Value), `"event_id":801234`)
	assert.Contains(t, string(msg.Value), `"county":"LLANO"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "product", msg.Headers[0].Key)
	assert.Equal(t, []byte("Hail"), msg.Headers[0].Value)
	assert.Equal(t, "mapped_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestNoticeFor(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(clockwork.NewRealClock()) })

	event := domain.NoaaEvent{
		EventID: 801234,
		Product: "Hail",
		Start:   now.Add(-time.Hour),
		End:     now.Add(-30 * time.Minute),
		County:  "LLANO",
	}
	files := []domain.NcFile{
		{S3Path: "hail/20240426/COMPOSITE_20240426-141000.nc"},
		{S3Path: "hail/20240426/COMPOSITE_20240426-142000.nc"},
	}

	notice := NoticeFor(event, files)

	assert.Equal(t, int64(801234), notice.EventID)
	assert.Equal(t, now, notice.MappedAt)
	assert.Equal(t, []string{
		"hail/20240426/COMPOSITE_20240426-141000.nc",
		"hail/20240426/COMPOSITE_20240426-142000.nc",
	}, notice.NcFiles)
}
