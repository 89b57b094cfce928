/*
Package sandbox runs one untrusted widget script and answers protocol requests
for it.

# Overview

A Runtime lives inside the isolated glyphbox process. It holds at most one
loaded script and a State describing the icon the script draws. Requests
arrive framed on stdin and each produces exactly one framed response on
stdout; nothing else is ever written there.

# Lifecycle

	Unloaded -> Loaded -> Initialized

The first Render for a path loads the script and calls its init callback
before rendering. A Render naming a different path discards the widget, its
VM and all state, then loads the new one. A load or init failure answers
Error and leaves the runtime Unloaded; the next Render retries.

# Scripts

Scripts are JavaScript evaluated by goja. A script defines a global Icon
object with any of these callbacks:

	init(state)
	render(canvas, state)
	on_click(state, {button, x, y})
	on_hover(state, entered)
	on_drop(state, paths)
	get_position({screen_width, screen_height, icon_count, icon_index, cell_width, cell_height})

this is the Icon object, so fields stored on it persist until reload.
Changes a callback makes to state.selected and state.hovered are kept until
the next metadata push.

# Containment

Every load and callback runs under Config.CallbackTimeout. On expiry the VM
is interrupted and the call fails like any thrown exception. Script errors
never end the request loop: Render and Event answer Error, Position falls
back to GridPosition. require, process, module and exports are removed and
timers are no-ops.
*/
package sandbox
