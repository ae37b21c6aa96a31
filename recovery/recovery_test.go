package recovery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfcodec/recovery"
)

func TestStrictStrategyFails(t *testing.T) {
	cause := errors.New("bad length")
	err := recovery.Report(context.Background(), recovery.NewStrictStrategy(), cause, recovery.Location{
		ByteOffset: 42,
		Component:  "parser",
		Issue:      recovery.IssueStreamLength,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, recovery.ErrAborted)

	var rerr *recovery.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, int64(42), rerr.Location.ByteOffset)
	assert.Contains(t, err.Error(), "stream-length")
}

func TestLenientStrategyRecords(t *testing.T) {
	rec := recovery.NewLenientStrategy()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := recovery.Report(ctx, rec, errors.New("lone CR"), recovery.Location{Issue: recovery.IssueLoneCR})
		require.NoError(t, err)
	}
	require.NoError(t, recovery.Report(ctx, rec, errors.New("cycle"), recovery.Location{Issue: recovery.IssueXRefCycle}))

	assert.Equal(t, 3, rec.Count(recovery.IssueLoneCR))
	assert.Equal(t, 1, rec.Count(recovery.IssueXRefCycle))
	assert.Len(t, rec.Events(), 4)
}

func TestNilStrategyContinues(t *testing.T) {
	assert.NoError(t, recovery.Report(context.Background(), nil, errors.New("x"), recovery.Location{}))
}

func TestIssueString(t *testing.T) {
	assert.Equal(t, "checksum", recovery.IssueChecksum.String())
	assert.Equal(t, "issue(99)", recovery.Issue(99).String())
}
