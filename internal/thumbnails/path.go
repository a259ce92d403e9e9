// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package thumbnails

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// PathStrategy selects how a thumbnail path is derived from a source blob URL.
type PathStrategy string

const (
	// StrategyTrailingSegments keeps the last two path segments, {folder}/{file}.
	StrategyTrailingSegments PathStrategy = "trailing-segments"
	// StrategyContainerPrefix keeps everything after the source container.
	StrategyContainerPrefix PathStrategy = "container-prefix"
)

var (
	ErrMalformedBlobURL  = errors.New("malformed blob url")
	ErrContainerMismatch = errors.New("blob is not in the source container")
)

func ParsePathStrategy(s string) (PathStrategy, error) {
	switch PathStrategy(s) {
	case StrategyTrailingSegments, "":
		return StrategyTrailingSegments, nil
	case StrategyContainerPrefix:
		return StrategyContainerPrefix, nil
	default:
		return "", fmt.Errorf("unknown path strategy %q", s)
	}
}

// PathDeriver turns the URL of a deleted source blob into the thumbnail's
// container-relative path.
type PathDeriver struct {
	Strategy        PathStrategy
	SourceContainer string
}

func (d PathDeriver) Derive(blobURL string) (string, error) {
	switch d.Strategy {
	case StrategyContainerPrefix:
		return DeriveAfterContainer(blobURL, d.SourceContainer)
	default:
		return DeriveTrailingSegments(blobURL)
	}
}

// DeriveTrailingSegments returns the last two segments of the URL path.
// https://acct.blob.core.windows.net/screenshots/11/game.jpg -> 11/game.jpg
func DeriveTrailingSegments(blobURL string) (string, error) {
	_, segs, err := splitBlobURL(blobURL)
	if err != nil {
		return "", err
	}
	if len(segs) < 2 {
		return "", fmt.Errorf("%w: %q has fewer than two path segments", ErrMalformedBlobURL, blobURL)
	}
	tail := segs[len(segs)-2:]
	if tail[0] == "" || tail[1] == "" {
		return "", fmt.Errorf("%w: %q has an empty trailing segment", ErrMalformedBlobURL, blobURL)
	}
	return tail[0] + "/" + tail[1], nil
}

// DeriveAfterContainer strips the source container from the URL path and
// returns the rest. Path-style URLs (Azurite, http://127.0.0.1:10000/account/container/...)
// carry the account name first.
func DeriveAfterContainer(blobURL, container string) (string, error) {
	if container == "" {
		return "", fmt.Errorf("source container is required")
	}
	host, segs, err := splitBlobURL(blobURL)
	if err != nil {
		return "", err
	}

	idx := 0
	if isPathStyleHost(host) {
		idx = 1
	}
	if len(segs) <= idx+1 {
		return "", fmt.Errorf("%w: %q has no blob path after the container", ErrMalformedBlobURL, blobURL)
	}
	if segs[idx] != container {
		return "", fmt.Errorf("%w: %q is in container %q, want %q", ErrContainerMismatch, blobURL, segs[idx], container)
	}

	rest := segs[idx+1:]
	for _, s := range rest {
		if s == "" {
			return "", fmt.Errorf("%w: %q has an empty path segment", ErrMalformedBlobURL, blobURL)
		}
	}
	return strings.Join(rest, "/"), nil
}

// splitBlobURL returns the host and the decoded path segments.
func splitBlobURL(blobURL string) (string, []string, error) {
	if strings.TrimSpace(blobURL) == "" {
		return "", nil, fmt.Errorf("%w: empty url", ErrMalformedBlobURL)
	}
	u, err := url.Parse(blobURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedBlobURL, err)
	}
	p := strings.TrimPrefix(u.Path, "/")
	if p == "" {
		return u.Host, nil, nil
	}
	return u.Host, strings.Split(p, "/"), nil
}

func isPathStyleHost(host string) bool {
	h := host
	if hn, _, err := net.SplitHostPort(host); err == nil {
		h = hn
	}
	return h == "localhost" || net.ParseIP(h) != nil
}
