package sqlstore

import (
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind_RewritesPlaceholdersForPostgres(t *testing.T) {
	q := "INSERT INTO members (id, code, name) VALUES (?, ?, ?)"

	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "INSERT INTO members (id, code, name) VALUES ($1, $2, $3)", pg.rebind(q))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, q, lite.rebind(q), "sqlite understands ? natively")

	assert.Equal(t, "", pg.rebind(""))
	assert.Equal(t, "SELECT 1", pg.rebind("SELECT 1"))
}

func TestTimeCodec_RoundTripsThroughUTC(t *testing.T) {
	lisbon := time.FixedZone("WEST", 1*60*60)
	orig := time.Date(2025, 6, 15, 13, 30, 45, 123456789, lisbon)

	s := fmtTime(orig)
	assert.Len(t, s, len(timeLayout), "the format is fixed width")
	assert.Equal(t, "2025-06-15T12:30:45.123456789Z", s)

	parsed, err := parseTime(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(orig))
	assert.Equal(t, time.UTC, parsed.Location())
}

func TestTimeCodec_StringsOrderLikeInstants(t *testing.T) {
	// Date-range queries compare stored strings, so string order must
	// agree with time order across every boundary we cross.
	instants := []time.Time{
		time.Date(2024, 12, 31, 23, 59, 59, 999999999, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 5, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 40, time.UTC),
		time.Date(2025, 9, 30, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	var formatted []string
	for _, ts := range instants {
		formatted = append(formatted, fmtTime(ts))
	}
	assert.True(t, sort.StringsAreSorted(formatted), "got %v", formatted)
}

func TestParseTime_RejectsForeignFormats(t *testing.T) {
	_, err := parseTime("2025-06-15 12:00:00")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse stored time")
}

func TestNullableCodecs(t *testing.T) {
	assert.Nil(t, fmtTimePtr(nil))
	assert.Nil(t, fmtUUIDPtr(nil))

	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	stored, ok := fmtTimePtr(&ts).(string)
	require.True(t, ok)
	back, err := parseTimePtr(sql.NullString{String: stored, Valid: true})
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.True(t, back.Equal(ts))

	none, err := parseTimePtr(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, none)

	id := uuid.New()
	idBack, err := parseUUIDPtr(sql.NullString{String: id.String(), Valid: true})
	require.NoError(t, err)
	require.NotNil(t, idBack)
	assert.Equal(t, id, *idBack)

	_, err = parseUUIDPtr(sql.NullString{String: "not-a-uuid", Valid: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse stored uuid")
}
