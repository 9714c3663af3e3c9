package store

// Declare database key prefix for objects
const (
	PrefixAccount = "account:"

	PrefixTx        = "tx:"
	PrefixChain     = "chain:"      // chain:<owner>:<seq> -> tx id
	PrefixTip       = "tip:"        // tip:<owner> -> tx id of the last=true link
	PrefixSignature = "sig:"        // sig:<signature> -> tx id
	PrefixSenderSig = "rsig:"       // rsig:<sender signature> -> receive-link id
	PrefixPendingIn = "pending_in:" // pending_in:<to>:<tx id> -> tx id
)
