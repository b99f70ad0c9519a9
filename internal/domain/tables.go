package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOprLog{},
	// WhatsApp
	&Profile{},
}
