package memory_test

import (
	"testing"

	"github.com/MrWong99/readalong/internal/letterstats/letterstatstest"
	"github.com/MrWong99/readalong/internal/letterstats/memory"
)

func TestStore(t *testing.T) {
	letterstatstest.Run(t, memory.New())
}
