package safe_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/safe/internal/models"
	"github.com/TheMichaelB/safe/internal/services/safe"
)

func TestBatch(t *testing.T) {
	f := newFixture(t, safe.WithWorkers(3))

	var reqs []safe.Request
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("file-%d.txt", i)
		f.writeSource(t, name, []byte(fmt.Sprintf("content %d", i)))
		reqs = append(reqs, f.encryptReq(name))
	}
	reqs = append(reqs, f.encryptReq("missing.txt"))

	outcomes := f.svc.Batch(context.Background(), models.OpEncrypt, reqs)
	require.Len(t, outcomes, len(reqs))

	for i, o := range outcomes[:6] {
		require.NoError(t, o.Err, o.Name)
		assert.Equal(t, fmt.Sprintf("file-%d.txt", i), o.Name)
		assert.Equal(t, filepath.Join(f.enc, o.Name), o.Result.Path)
	}

	last := outcomes[6]
	assert.Nil(t, last.Result)
	assert.True(t, models.IsCode(last.Err, models.ErrCodeIO))

	// Each container decrypts to its own content
	var dec []safe.Request
	for i := 0; i < 6; i++ {
		dec = append(dec, f.decryptReq(fmt.Sprintf("file-%d.txt", i), password))
	}
	for i, o := range f.svc.Batch(context.Background(), models.OpDecrypt, dec) {
		require.NoError(t, o.Err)
		assert.Equal(t, int64(len(fmt.Sprintf("content %d", i))), o.Result.Size)
	}

	assert.Equal(t, 12, f.journal.Len())
}

func TestBatchInspect(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "a.txt", []byte("a"))

	_, err := f.svc.Encrypt(context.Background(), f.encryptReq("a.txt"))
	require.NoError(t, err)

	outcomes := f.svc.Batch(context.Background(), models.OpInspect, []safe.Request{
		{SourceDir: f.enc, Name: "a.txt"},
	})
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "scrypt", outcomes[0].Result.Info.KDF)
}

func TestBatchUnknownOperation(t *testing.T) {
	f := newFixture(t)

	outcomes := f.svc.Batch(context.Background(), "shred", []safe.Request{f.encryptReq("a.txt")})
	require.Len(t, outcomes, 1)
	assert.True(t, models.IsCode(outcomes[0].Err, models.ErrCodeInvalidInput))
}

func TestBatchCanceled(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "a.txt", []byte("a"))
	f.writeSource(t, "b.txt", []byte("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := f.svc.Batch(ctx, models.OpEncrypt, []safe.Request{
		f.encryptReq("a.txt"),
		f.encryptReq("b.txt"),
	})

	for _, o := range outcomes {
		assert.True(t, models.IsCode(o.Err, models.ErrCodeCanceled), o.Name)
	}
	assert.NoFileExists(t, filepath.Join(f.enc, "a.txt"))
	assert.NoFileExists(t, filepath.Join(f.enc, "b.txt"))
	assert.Equal(t, 0, f.journal.Len())
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "a.txt", []byte("async"))

	ch := f.svc.Submit(context.Background(), models.OpEncrypt, f.encryptReq("a.txt"))

	select {
	case o, ok := <-ch:
		require.True(t, ok)
		require.NoError(t, o.Err)
		assert.Equal(t, "a.txt", o.Result.Name)
	case <-time.After(10 * time.Second):
		t.Fatal("no outcome")
	}

	// Closed after the single outcome
	_, ok := <-ch
	assert.False(t, ok)
}

func TestSubmitError(t *testing.T) {
	f := newFixture(t)

	o := <-f.svc.Submit(context.Background(), models.OpDecrypt, f.decryptReq("missing.txt", password))
	assert.True(t, models.IsCode(o.Err, models.ErrCodeIO))
}

func TestSubmitCanceledDiscardsOutcome(t *testing.T) {
	f := newFixture(t)
	f.writeSource(t, "a.txt", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := f.svc.Submit(ctx, models.OpEncrypt, f.encryptReq("a.txt"))

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(10 * time.Second):
		t.Fatal("channel not closed")
	}
	assert.NoFileExists(t, filepath.Join(f.enc, "a.txt"))
}
