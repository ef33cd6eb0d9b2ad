package handler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkordes/trip-scheduler/internal/domain"
)

func TestUnwrapMessage(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
		want     string
	}{
		{
			name:     "bare sentinel under nested prefixes",
			err:      fmt.Errorf("service.ScheduleService.GetByID: %w", fmt.Errorf("repo.ScheduleRepo.GetByID: %w", domain.ErrNotFound)),
			sentinel: domain.ErrNotFound,
			want:     "not found",
		},
		{
			name:     "detail after sentinel",
			err:      fmt.Errorf("service.ScheduleService.Create: %w: at least one destination is required", domain.ErrInvalidArgument),
			sentinel: domain.ErrInvalidArgument,
			want:     "at least one destination is required",
		},
		{
			name:     "context before sentinel",
			err:      fmt.Errorf("service.ScheduleService.Create: trip request 42: %w", domain.ErrNotFound),
			sentinel: domain.ErrNotFound,
			want:     "trip request 42: not found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, unwrapMessage(tc.err, tc.sentinel))
		})
	}
}
