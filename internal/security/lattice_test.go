package security

import (
	"testing"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeMonotone(t *testing.T) {
	required := model.RequiredLevel(model.CmdProcessKill)
	for level := model.ReadOnly; level <= model.SystemAdmin; level++ {
		err := Authorize(model.CmdProcessKill, level)
		if level >= required {
			assert.NoError(t, err, "level %d should be authorized", level)
		} else {
			assert.Error(t, err, "level %d should be denied", level)
		}
	}
}

func TestAuthorizeErrorNamesBothLevels(t *testing.T) {
	err := Authorize(model.CmdProcessKill, model.BasicWrite)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Required level: 2")
	assert.Contains(t, err.Error(), "your level: 1")
}

func TestAuthorizeUnknownKindFailsClosed(t *testing.T) {
	err := Authorize(model.CommandKind("made-up-kind"), model.ServiceControl)
	require.Error(t, err)

	assert.NoError(t, Authorize(model.CommandKind("made-up-kind"), model.SystemAdmin))
}
