package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gemini-qa/internal/domain"
)

func TestNew_AssignsUUID(t *testing.T) {
	s := New()
	_, err := uuid.Parse(s.ID())
	require.NoError(t, err)
	require.Zero(t, s.Len())
}

func TestAppend_KeepsChronologicalOrder(t *testing.T) {
	s := New()
	s.Append(domain.RoleUser, "What is 2+2?")
	s.Append(domain.RoleModel, "4")

	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "What is 2+2?"},
		{Role: domain.RoleModel, Content: "4"},
	}, s.Messages())
}

func TestMessages_ReturnsCopy(t *testing.T) {
	s := New()
	s.Append(domain.RoleUser, "hi")

	msgs := s.Messages()
	msgs[0].Content = "mutated"
	require.Equal(t, "hi", s.Messages()[0].Content)
}

func TestAppend_Concurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(domain.RoleUser, "q")
		}()
	}
	wg.Wait()
	require.Equal(t, 50, s.Len())
}

func TestStore_GetOrCreate(t *testing.T) {
	st := NewStore()

	a, created := st.GetOrCreate("")
	require.True(t, created)
	require.NotEmpty(t, a.ID())

	again, created := st.GetOrCreate(a.ID())
	require.False(t, created)
	require.Same(t, a, again)

	named, created := st.GetOrCreate(" conv-1 ")
	require.True(t, created)
	require.Equal(t, "conv-1", named.ID())

	got, ok := st.Get("conv-1")
	require.True(t, ok)
	require.Same(t, named, got)
	require.Equal(t, 2, st.Len())
}

func TestStore_GetMissing(t *testing.T) {
	_, ok := NewStore().Get("nope")
	require.False(t, ok)
}
