package slack

var (
	BuildApprovalBlocks       = buildApprovalBlocks
	BuildApprovalResultBlocks = buildApprovalResultBlocks
	ShortenString             = shortenString
)
