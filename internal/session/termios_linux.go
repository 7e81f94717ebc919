package session

import "golang.org/x/sys/unix"

// configureRawTermios puts the PTY slave into the raw-ish mode required by
// §4.1: no input translation, no output post-processing, 8-bit characters,
// no echo/canonical editing/signal generation, VMIN=1 VTIME=0 so reads
// return as soon as at least one byte is available.
func configureRawTermios(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	raw := *t
	raw.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Cflag &^= unix.CSIZE | unix.PARENB
	raw.Cflag |= unix.CS8
	raw.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, unix.TCSETS, &raw)
}
