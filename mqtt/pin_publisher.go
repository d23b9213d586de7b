package mqtt

import (
	"context"
	"fmt"
	"strings"
)

// PinPublisher publishes every pin change as a retained message on
// <Prefix>/pin/<id> with payload "0" or "1".
type PinPublisher struct {
	Publisher Publisher
	Prefix    string
}

func (pp *PinPublisher) Topic(pin uint8) string {
	return fmt.Sprintf("%s/pin/%d", strings.TrimSuffix(pp.Prefix, "/"), pin)
}

func (pp *PinPublisher) PinChanged(ctx context.Context, pin, value uint8) error {
	return pp.Publisher.Publish(ctx, pp.Topic(pin), []byte(fmt.Sprintf("%d", value)), true)
}
