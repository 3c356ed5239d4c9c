package debuginfo

// Debug stream opcodes.
const (
	opEndSequence        = 0x00
	opAdvancePC          = 0x01
	opAdvanceLine        = 0x02
	opStartLocal         = 0x03
	opStartLocalExtended = 0x04
	opEndLocal           = 0x05
	opRestartLocal       = 0x06
	opSetPrologueEnd     = 0x07
	opSetEpilogueBegin   = 0x08
	opSetFile            = 0x09

	// Opcodes from opFirstSpecial up advance address and line together.
	opFirstSpecial = 0x0a
	lineBase       = -4
	lineRange      = 15
)

func specialOpcode(deltaLine, deltaAddress int) int {
	return (deltaLine - lineBase) + lineRange*deltaAddress + opFirstSpecial
}
