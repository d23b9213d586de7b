package gpionet

// OutboundQueue holds encoded write-style commands until they are flushed.
type OutboundQueue struct {
	data  []byte
	count int
}

// Add appends one encoded command. A multi-pin command still counts once.
func (oq *OutboundQueue) Add(cmd []byte) {
	oq.data = append(oq.data, cmd...)
	oq.count++
}

// Count is the number of status bytes the daemon will answer with.
func (oq *OutboundQueue) Count() int {
	return oq.count
}

func (oq *OutboundQueue) Len() int {
	return len(oq.data)
}

// Bytes returns the queued commands as one contiguous transmission.
func (oq *OutboundQueue) Bytes() []byte {
	return oq.data
}

func (oq *OutboundQueue) Reset() {
	oq.data = nil
	oq.count = 0
}
