package events

const (
	TopicSegmentAllocated = "segmentd:events:segment:allocated"
	TopicSegmentReleased  = "segmentd:events:segment:released"
	TopicSegmentExhausted = "segmentd:events:segment:exhausted"
	TopicScopeChanged     = "segmentd:events:scope:changed"
)
