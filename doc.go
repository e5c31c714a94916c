// Package comrelay relays bytes between a host stream pair (normally
// stdin/stdout) and a serial port, in both directions at once. It is
// the core of the comrelay command, which lets a program that only
// speaks pipes talk to a device on a serial line.
//
// Features
//
//   - Full-duplex: host input -> serial and serial -> host output run
//     independently, each through its own bounded ring buffer.
//   - Event-driven: serial I/O is issued asynchronously and resumed
//     from line events (RXCHAR, TXEMPTY, ...), with a periodic retry
//     backstop for devices that drop events.
//   - Graceful drain: when one side ends, bytes already buffered for
//     the other side are flushed before the relay returns.
//   - Fixed line configuration: 9600 baud, 8 data bits, no parity, one
//     stop bit, DTR and RTS asserted, CTS output flow control.
//   - Structured logging with millisecond UTC timestamps, down to
//     per-chunk trace records.
//
// # Construction
//
// Open the port with OpenDevice and hand it to NewRelay together with
// the host streams:
//
//	dev, err := comrelay.OpenDevice("/dev/ttyUSB0", comrelay.DefaultSettings(), logger)
//	if err != nil {
//	    // handle open error
//	}
//	relay := comrelay.NewRelay(dev, os.Stdin, os.Stdout, logger, comrelay.Options{})
//	os.Exit(relay.Run())
//
// Run blocks until the relay terminates and returns the process exit
// code: 0 on a clean close from either side, 6 on a serial transport
// failure, or the OS error number of a failed host stream.
//
// # Notes
//
// Host stream reads and writes run in plain blocking goroutines. A
// worker still parked in such a call when the relay stops cannot be
// cancelled portably; it is abandoned and ends with the process. This
// matters only to embedders that expect Run to reclaim every
// goroutine before returning.
package comrelay
