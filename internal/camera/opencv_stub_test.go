//go:build !opencv

package camera

import (
	"context"
	"errors"
	"testing"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/types"
)

func TestOpenCVUnavailableWithoutTag(t *testing.T) {
	src := NewOpenCVSource(config.Default().Camera)
	if err := src.Open(context.Background()); !errors.Is(err, types.ErrCameraUnavailable) {
		t.Errorf("expected ErrCameraUnavailable, got %v", err)
	}
}
