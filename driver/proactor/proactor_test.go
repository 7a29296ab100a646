package proactor

import (
	"testing"
	"time"

	"github.com/kayalabs/netcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newPipePair(t *testing.T) (readFD, writeFD int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestProactorReadCompletesOnData(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	defer p.Close()

	readFD, writeFD := newPipePair(t)
	require.NoError(t, p.Attach(netcore.Descriptor(readFD)))

	buf := make([]byte, 5)
	done := make(chan struct{})
	var n int
	var rerr error
	require.NoError(t, p.Read(netcore.Descriptor(readFD), buf, time.Time{}, false, func(gotN int, gotErr error) {
		n, rerr = gotN, gotErr
		close(done)
	}))

	_, err = unix.Write(writeFD, []byte("hi"))
	require.NoError(t, err)
	require.NoError(t, p.Poll(time.Second))

	<-done
	require.NoError(t, rerr)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestProactorReadFullAccumulatesAcrossReadinessEdges(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	defer p.Close()

	readFD, writeFD := newPipePair(t)
	require.NoError(t, p.Attach(netcore.Descriptor(readFD)))

	buf := make([]byte, 4)
	done := make(chan struct{})
	var n int
	require.NoError(t, p.Read(netcore.Descriptor(readFD), buf, time.Time{}, true, func(gotN int, gotErr error) {
		n = gotN
		close(done)
	}))

	unix.Write(writeFD, []byte("ab"))
	require.NoError(t, p.Poll(time.Second))
	select {
	case <-done:
		t.Fatal("completed before buffer was full")
	default:
	}

	unix.Write(writeFD, []byte("cd"))
	require.NoError(t, p.Poll(time.Second))
	<-done
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(buf))
}

func TestProactorWriteCompletion(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	defer p.Close()

	readFD, writeFD := newPipePair(t)
	require.NoError(t, p.Attach(netcore.Descriptor(writeFD)))

	done := make(chan struct{})
	var n int
	require.NoError(t, p.Write(netcore.Descriptor(writeFD), []byte("payload"), time.Time{}, func(gotN int, gotErr error) {
		n = gotN
		close(done)
	}))
	require.NoError(t, p.Poll(time.Second))
	<-done
	assert.Equal(t, len("payload"), n)

	readBuf := make([]byte, 16)
	nr, _ := unix.Read(readFD, readBuf)
	assert.Equal(t, "payload", string(readBuf[:nr]))
}

func TestProactorDeadlineFailsZeroProgressOp(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	defer p.Close()

	readFD, _ := newPipePair(t)
	require.NoError(t, p.Attach(netcore.Descriptor(readFD)))

	buf := make([]byte, 4)
	done := make(chan struct{})
	var rerr error
	require.NoError(t, p.Read(netcore.Descriptor(readFD), buf, time.Now().Add(10*time.Millisecond), true, func(_ int, gotErr error) {
		rerr = gotErr
		close(done)
	}))

	time.Sleep(30 * time.Millisecond)
	p.PollTimeouts()
	<-done
	assert.ErrorIs(t, rerr, netcore.ErrTimeout)
}
