package identity

import "fmt"

type ConfigError struct {
	Reason string
}

func (err *ConfigError) Error() string {
	return "invalid directory config: " + err.Reason
}

type MalformedPathError struct {
	Path string
}

func (err *MalformedPathError) Error() string {
	return fmt.Sprintf(
		"malformed collection path `%s`: want `/<zone>/home/<group>/...`",
		err.Path,
	)
}
