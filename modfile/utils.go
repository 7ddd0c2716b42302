package modfile

// convertName builds a string out of a fixed-size name field.
// Zero bytes are dropped wherever they are, everything else is kept in order.
func convertName(data []byte) string {
	buf := make([]byte, 0, len(data))
	for _, b := range data {
		if b != 0 {
			buf = append(buf, b)
		}
	}
	return string(buf)
}
