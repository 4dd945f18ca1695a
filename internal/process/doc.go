// Package process supervises the RS485 gateway subprocess.
//
// When twc.gateway.managed is set the director owns the gateway binary
// instead of expecting it to run under systemd. The Supervisor:
//
//   - starts the gateway with --interface /dev/<rs485_interface>
//   - logs its stdout/stderr line by line
//   - restarts it on failure with exponential backoff that resets once a
//     run has been stable for a while
//   - gives up on exit code 2 (configuration error) or after
//     max_restart_attempts
//   - stops it with SIGTERM to the process group, then SIGKILL
//
// Example usage:
//
//	sup, err := process.NewSupervisor(process.OptionsFromConfig(cfg.TWC.Gateway, cfg.TWC.RS485Interface))
//	if err != nil {
//	    return err
//	}
//	sup.SetLogger(logger)
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
