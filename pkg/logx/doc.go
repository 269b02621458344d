// Package logx is noisebot's leveled logging.
//
// A Logger never writes anything itself. It stamps each call into a Record
// and hands it to every subscriber, in order. Subscribers (sinks) decide
// whether and where the record goes:
//   - ConsoleSink filters on Logger.MinConsoleLevel and renders through a
//     zerolog ConsoleWriter with colored levels
//   - FileSink filters on Logger.MinFileLevel, appends plain text (or
//     zerolog JSON) lines, and rotates the file once it reaches
//     Logger.MaxFileSize
//
// Service builds loggers with the standard console + file policy from one
// startup Config.
package logx
