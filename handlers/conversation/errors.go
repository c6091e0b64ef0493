package conversation

import "errors"

var errEmptyTranscript = errors.New("empty transcript")
