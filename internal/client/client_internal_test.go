package client

import (
	"errors"
	"testing"

	"google.golang.org/grpc/codes"

	"github.com/jrschumacher/granc-go/internal/grancerr"
)

func TestIsReflectionNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "server NotFound",
			err:  &grancerr.ReflectionResolveError{Kind: grancerr.ServerError, ServerCode: int32(codes.NotFound)},
			want: true,
		},
		{
			name: "server other code",
			err:  &grancerr.ReflectionResolveError{Kind: grancerr.ServerError, ServerCode: int32(codes.Internal)},
			want: false,
		},
		{
			name: "non-server-error kind",
			err:  &grancerr.ReflectionResolveError{Kind: grancerr.StreamClosed},
			want: false,
		},
		{
			name: "unrelated error",
			err:  errors.New("boom"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isReflectionNotFound(tt.err); got != tt.want {
				t.Errorf("isReflectionNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
