package config

import "time"

const (
	ltiKeyVar     = "LTI_KEY"
	ltiSecretVar  = "LTI_SECRET"
	launchSkewVar = "LTI_LAUNCH_MAX_SKEW"
)

type LTI struct {
	src *source
}

var _ LTIConfig = LTI{}

func (l LTI) GetLTIKey() string {
	return l.src.get(ltiKeyVar, "")
}

func (l LTI) GetLTISecret() string {
	return l.src.get(ltiSecretVar, "")
}

// GetLaunchMaxSkew bounds the accepted oauth_timestamp drift of a launch request
func (l LTI) GetLaunchMaxSkew() time.Duration {
	return l.src.duration(launchSkewVar, 5*time.Minute)
}
