package telegram

// UI texts in English
const (
	startText = "👋 Welcome to CKPool Solo Mining Monitor Bot!\n\n" +
		"Available commands:\n" +
		"• /add_worker - Add worker\n" +
		"• /help - Show help\n" +
		"• /status - Check settings"

	helpText = "📋 Available Commands:\n\n" +
		"• /start - Start bot\n" +
		"• /help - Show help\n" +
		"• /add_worker <label> <BTC_address> - Add worker\n" +
		"• /remove_worker <label> - Remove worker\n" +
		"• /list_workers - List workers\n" +
		"• /check, /now - Check current status\n" +
		"• /time <HH:MM> - Set daily report time\n" +
		"• /status - Check settings\n" +
		"• /stop - Stop notifications"

	addWorkerUsage = "📋 How to use /add_worker:\n\n" +
		"/add_worker <label> <BTC_address>\n\n" +
		"Example: /add_worker miner1 3LKSkoE3QtXAU6oDmVHdMmEJ3EwwS6ESwy"
	removeWorkerUsage = "📋 How to use /remove_worker:\n\n/remove_worker <label>"

	invalidAddressText = "❌ Invalid BTC address."
	labelTooLongText   = "❌ Label is too long."
	workerAddedFmt     = "✅ Worker '%s' added.\nAddress: %s"
	workerUpdatedFmt   = "✅ Worker '%s' updated.\nAddress: %s"
	addressTypeFmt     = "\nType: %s"
	workerRemovedFmt   = "✅ Worker '%s' removed."
	workerNotFoundFmt  = "❌ Worker '%s' not found."

	noWorkersText      = "📋 No workers registered."
	workersTitle       = "📋 Registered Workers:"
	noWorkersCheckText = "❌ No workers registered.\nPlease add a worker using /add_worker."
	fetchingFmt        = "📊 Fetching data... (%d workers)"

	timeSetFmt      = "✅ Daily report time set to %s %s."
	invalidTimeText = "❌ Invalid time format. Please use HH:MM format (example: 09:00)"

	statusTitle    = "📊 Current Settings:"
	statusTimeFmt  = "• Daily Report: %s %s"
	statusActive   = "• Status: Active ✅"
	statusInactive = "• Status: Inactive ❌"
	statusCountFmt = "• Registered Workers: %d"

	stoppedText = "🔕 Notifications stopped.\nSend /start to resume."
	unknownText = "❓ Unknown command.\nUse /help to see available commands."
	errorText   = "⚠️ An error occurred\nPlease try again later."
)
