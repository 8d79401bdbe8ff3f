package presence

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/internal/room"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
)

type fakeConn struct{ id string }

func (c *fakeConn) ConnId() string              { return c.id }
func (c *fakeConn) Push(evt *event.Event) error { return nil }

func TestRegister_MultiTab(t *testing.T) {
	reg := NewRegistry(nil)
	tab1, tab2 := &fakeConn{"t1"}, &fakeConn{"t2"}

	_, err := reg.Register("ag__1", constant.RoleAgent, tab1)
	require.NoError(t, err)
	_, err = reg.Register("ag__1", constant.RoleAgent, tab2)
	require.NoError(t, err)

	assert.Len(t, reg.Lookup("ag__1"), 2)
	assert.Equal(t, 2, reg.ConnCount())
	assert.Equal(t, 1, reg.ParticipantCount())
}

func TestRegister_SameConnTwice(t *testing.T) {
	reg := NewRegistry(nil)
	conn := &fakeConn{"c"}

	_, err := reg.Register("ag__1", constant.RoleAgent, conn)
	require.NoError(t, err)
	_, err = reg.Register("ag__2", constant.RoleAgent, conn)
	assert.True(t, errors.Is(err, errcode.ErrAlreadyRegistered))
}

func TestUnregister_LastConn(t *testing.T) {
	reg := NewRegistry(nil)
	tab1, tab2 := &fakeConn{"t1"}, &fakeConn{"t2"}
	reg.Register("ag__1", constant.RoleAgent, tab1)
	reg.Register("ag__1", constant.RoleAgent, tab2)
	reg.SetStatus("ag__1", constant.StatusBusy)

	dep := reg.Unregister(tab1)
	require.NotNil(t, dep)
	assert.False(t, dep.LastConn)
	assert.Equal(t, constant.StatusBusy, reg.Status("ag__1"))

	dep = reg.Unregister(tab2)
	require.NotNil(t, dep)
	assert.True(t, dep.LastConn)
	assert.Equal(t, constant.StatusBusy, dep.PreviousStatus)
	assert.Equal(t, constant.StatusOffline, reg.Status("ag__1"))
	assert.Empty(t, reg.Lookup("ag__1"))

	assert.Nil(t, reg.Unregister(tab2))
}

func TestUnregister_LeavesRooms(t *testing.T) {
	rooms := room.NewBroadcaster()
	reg := NewRegistry(rooms)
	conn := &fakeConn{"c"}
	reg.Register("ag__1", constant.RoleAgent, conn)
	rooms.Subscribe("c1", conn)
	rooms.Subscribe("c2", conn)

	dep := reg.Unregister(conn)
	require.NotNil(t, dep)
	assert.Equal(t, []string{"c1", "c2"}, dep.Rooms)
	assert.Empty(t, rooms.RoomsOf(conn))
}

func TestSetStatus_ReturnsPrevious(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Equal(t, constant.StatusOffline, reg.SetStatus("ag__1", constant.StatusOnline))
	assert.Equal(t, constant.StatusOnline, reg.SetStatus("ag__1", constant.StatusOnline))
	assert.Equal(t, constant.StatusOnline, reg.SetStatus("ag__1", constant.StatusAway))
	assert.Equal(t, constant.StatusAway, reg.Status("ag__1"))
}

func TestOnline_FiltersByRole(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("ag__2", constant.RoleAgent, &fakeConn{"a2"})
	reg.Register("ag__1", constant.RoleAgent, &fakeConn{"a1"})
	reg.Register("v___x", constant.RoleVisitor, &fakeConn{"v"})

	assert.Equal(t, []string{"ag__1", "ag__2"}, reg.Online(constant.RoleAgent))
	assert.Len(t, reg.Online(""), 3)
	assert.Len(t, reg.AllConns(), 3)
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry(room.NewBroadcaster())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := &fakeConn{fmt.Sprintf("c%d", i)}
			_, err := reg.Register("ag__1", constant.RoleAgent, conn)
			assert.NoError(t, err)
			reg.Lookup("ag__1")
			reg.Unregister(conn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.ConnCount())
	assert.Equal(t, 0, reg.ParticipantCount())
}
