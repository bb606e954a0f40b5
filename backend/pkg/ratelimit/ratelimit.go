// Package `ratelimit` wraps the subset of `github.com/juju/ratelimit` that
// other packages use, mainly to throttle vault copy streams.
package ratelimit

import "github.com/juju/ratelimit"

type Bucket = ratelimit.Bucket

// funcs
var Reader = ratelimit.Reader
var Writer = ratelimit.Writer
var NewBucketWithRate = ratelimit.NewBucketWithRate
