package usecase

import (
	"errors"
	"fmt"

	"github.com/Harsh-BH/reel/internal/domain"
)

// channelErr makes sure a work channel failure carries domain.ErrChannelUnavailable.
func channelErr(op string, err error) error {
	if errors.Is(err, domain.ErrChannelUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrChannelUnavailable, err)
}
