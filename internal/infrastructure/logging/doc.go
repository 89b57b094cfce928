// Package logging builds the zap loggers of both binaries.
//
// deskglyph logs as RoleDaemon: timestamped JSON, or colored console lines
// when logging.development is set. glyphbox logs as RoleSandbox: bare JSON
// lines that the host session decodes from the child's stderr and re-logs
// at the same level. Neither may write to stdout, which carries protocol
// frames in glyphbox and command output in deskglyph.
//
// Example Usage:
//
//	logger, err := logging.ForDaemon(cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info("Starting deskglyph", zap.String("desktop", cfg.Desktop.Dir))
package logging
