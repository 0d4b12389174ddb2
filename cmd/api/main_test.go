package main

import (
	"context"
	"testing"

	"github.com/punchamoorthee/libraryops/internal/config"
	"github.com/punchamoorthee/libraryops/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStoreWithoutDSNUsesMemory(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "development"}}

	st, err := openStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	assert.IsType(t, &store.Memory{}, st)
}
