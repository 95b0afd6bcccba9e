package chatstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/aqua777/go-callrag/llm"
)

// chatStoreSuite runs the same contract against every ChatStore.
type chatStoreSuite struct {
	suite.Suite
	newStore func() ChatStore
	store    ChatStore
	ctx      context.Context
}

func (s *chatStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *chatStoreSuite) seed(key string, contents ...string) {
	for i, c := range contents {
		role := llm.MessageRoleUser
		if i%2 == 1 {
			role = llm.MessageRoleAssistant
		}
		s.Require().NoError(s.store.AddMessage(s.ctx, key, llm.NewChatMessage(role, c), IndexNotSpecified))
	}
}

func (s *chatStoreSuite) contents(key string) []string {
	msgs, err := s.store.GetMessages(s.ctx, key)
	s.Require().NoError(err)
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func (s *chatStoreSuite) TestSetAndGet() {
	err := s.store.SetMessages(s.ctx, "adele", []llm.ChatMessage{
		llm.NewUserMessage("Which calls had high jitter?"),
		llm.NewAssistantMessage("Call 42 had 48 ms jitter."),
	})
	s.Require().NoError(err)

	msgs, err := s.store.GetMessages(s.ctx, "adele")
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal(llm.MessageRoleUser, msgs[0].Role)
	s.Equal("Call 42 had 48 ms jitter.", msgs[1].Content)

	s.Require().NoError(s.store.SetMessages(s.ctx, "adele", []llm.ChatMessage{llm.NewUserMessage("reset")}))
	s.Equal([]string{"reset"}, s.contents("adele"))
}

func (s *chatStoreSuite) TestGetMissing() {
	msgs, err := s.store.GetMessages(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(msgs)
}

func (s *chatStoreSuite) TestAddAndInsert() {
	s.seed("k", "a", "c")
	s.Require().NoError(s.store.AddMessage(s.ctx, "k", llm.NewUserMessage("b"), 1))
	s.Require().NoError(s.store.AddMessage(s.ctx, "k", llm.NewUserMessage("d"), 99))
	s.Equal([]string{"a", "b", "c", "d"}, s.contents("k"))
}

func (s *chatStoreSuite) TestDeleteMessage() {
	s.seed("k", "a", "b", "c")

	deleted, err := s.store.DeleteMessage(s.ctx, "k", 1)
	s.Require().NoError(err)
	s.Require().NotNil(deleted)
	s.Equal("b", deleted.Content)
	s.Equal([]string{"a", "c"}, s.contents("k"))

	deleted, err = s.store.DeleteMessage(s.ctx, "k", 5)
	s.Require().NoError(err)
	s.Nil(deleted)

	s.seed("k", "d")
	s.Equal([]string{"a", "c", "d"}, s.contents("k"))
}

func (s *chatStoreSuite) TestDeleteLastAndAll() {
	s.seed("k", "a", "b")

	last, err := s.store.DeleteLastMessage(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.Equal("b", last.Content)
	s.Equal(llm.MessageRoleAssistant, last.Role)

	all, err := s.store.DeleteMessages(s.ctx, "k")
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Empty(s.contents("k"))

	all, err = s.store.DeleteMessages(s.ctx, "missing")
	s.Require().NoError(err)
	s.Nil(all)

	last, err = s.store.DeleteLastMessage(s.ctx, "missing")
	s.Require().NoError(err)
	s.Nil(last)
}

func (s *chatStoreSuite) TestKeys() {
	s.seed("zed", "a")
	s.seed("adele", "b")
	keys, err := s.store.GetKeys(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"adele", "zed"}, keys)
}

func (s *chatStoreSuite) TestEmptyKey() {
	s.ErrorIs(s.store.AddMessage(s.ctx, "", llm.NewUserMessage("x"), IndexNotSpecified), ErrEmptyKey)
	s.ErrorIs(s.store.SetMessages(s.ctx, "", nil), ErrEmptyKey)
}

func TestSimpleChatStoreSuite(t *testing.T) {
	suite.Run(t, &chatStoreSuite{newStore: func() ChatStore { return NewSimpleChatStore() }})
}

func TestSQLChatStoreSuite(t *testing.T) {
	suite.Run(t, &chatStoreSuite{newStore: func() ChatStore {
		st, err := OpenSQLChatStore("sqlite://" + filepath.Join(t.TempDir(), "chat.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	}})
}

func TestSimpleChatStorePersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultPersistFilename)

	st := NewSimpleChatStore()
	require.NoError(t, st.AddMessage(ctx, "s1", llm.NewUserMessage("hello"), IndexNotSpecified))
	require.NoError(t, st.Persist(path))

	loaded, err := LoadSimpleChatStore(path)
	require.NoError(t, err)
	msgs, err := loaded.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []llm.ChatMessage{llm.NewUserMessage("hello")}, msgs)

	empty, err := LoadSimpleChatStore(filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	keys, err := empty.GetKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLChatStoreReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "chat.db")

	st, err := OpenSQLChatStore(dsn)
	require.NoError(t, err)
	require.NoError(t, st.AddMessage(ctx, "s1", llm.NewUserMessage("persisted"), IndexNotSpecified))
	require.NoError(t, st.Close())

	st, err = OpenSQLChatStore(dsn)
	require.NoError(t, err)
	defer st.Close()
	msgs, err := st.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "persisted", msgs[0].Content)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{dsn: "sqlite://chat.db", want: "sqlite"},
		{dsn: "chat.db", want: "sqlite"},
		{dsn: "postgres://user:pw@localhost:5432/callrag", want: "postgres"},
		{dsn: "postgresql://localhost/callrag", want: "postgres"},
		{dsn: "mysql://localhost/x", wantErr: true},
		{dsn: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, err := Dialector(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}
