package drive

// tickWatchdogs reloads or decrements both counters from the commanded
// inputs of this tick.
func tickWatchdogs(s *ModuleState) {
	if s.CANLinkSeen {
		s.WatchdogCAN = WatchdogCANReload
	} else if s.WatchdogCAN > 0 {
		s.WatchdogCAN--
	}

	if s.AccelCmd > 0 || s.BrakeCmd > 0 {
		s.WatchdogThrottle = WatchdogThrottleReload
	} else if s.WatchdogThrottle > 0 {
		s.WatchdogThrottle--
	}
}

// deadmanReleased reports whether the link has gone quiet long enough that
// held commands are treated as released.
func deadmanReleased(s *ModuleState) bool {
	return s.WatchdogCAN <= WatchdogCANReload-DeadmanMargin
}

func linkLost(s *ModuleState) bool {
	return s.WatchdogCAN == 0
}

func throttleExpired(s *ModuleState) bool {
	return s.WatchdogThrottle == 0
}
