package audio

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/ema-duet/core/audio"

var logger = otelslog.NewLogger(scopeName)
