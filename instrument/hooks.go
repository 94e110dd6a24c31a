package instrument

// DefaultDispatcher is the internal name of the class whose static methods
// receive hook calls.
const DefaultDispatcher = "rocks/inspectit/agent/java/hooking/HookDispatcher"

// Hook method names on the dispatcher.
const (
	HookMethodBeforeBody         = "dispatchMethodBeforeBody"
	HookFirstMethodAfterBody     = "dispatchFirstMethodAfterBody"
	HookSecondMethodAfterBody    = "dispatchSecondMethodAfterBody"
	HookOnThrowInBody            = "dispatchOnThrowInBody"
	HookBeforeCatch              = "dispatchBeforeCatch"
	HookConstructorBeforeBody    = "dispatchConstructorBeforeBody"
	HookConstructorAfterBody     = "dispatchConstructorAfterBody"
	HookConstructorOnThrowInBody = "dispatchConstructorOnThrowInBody"
	HookConstructorBeforeCatch   = "dispatchConstructorBeforeCatch"
	HookSpecialMethodBeforeBody  = "dispatchSpecialMethodBeforeBody"
	HookSpecialMethodAfterBody   = "dispatchSpecialMethodAfterBody"
	HookLoadClass                = "loadClass"
)

const (
	objectClass     = "java/lang/Object"
	throwableClass  = "java/lang/Throwable"
	classClass      = "java/lang/Class"
	objectArrayDesc = "[Ljava/lang/Object;"
)

// hookDescriptors maps each hook to its descriptor. Ids are passed as long,
// receivers, results and exceptions as Object.
var hookDescriptors = map[string]string{
	HookMethodBeforeBody:         "(JLjava/lang/Object;[Ljava/lang/Object;)V",
	HookFirstMethodAfterBody:     "(JLjava/lang/Object;[Ljava/lang/Object;Ljava/lang/Object;)V",
	HookSecondMethodAfterBody:    "(JLjava/lang/Object;[Ljava/lang/Object;Ljava/lang/Object;)V",
	HookOnThrowInBody:            "(JLjava/lang/Object;[Ljava/lang/Object;Ljava/lang/Object;)V",
	HookBeforeCatch:              "(JLjava/lang/Object;)V",
	HookConstructorBeforeBody:    "(J[Ljava/lang/Object;)V",
	HookConstructorAfterBody:     "(JLjava/lang/Object;[Ljava/lang/Object;)V",
	HookConstructorOnThrowInBody: "(JLjava/lang/Object;[Ljava/lang/Object;Ljava/lang/Object;)V",
	HookConstructorBeforeCatch:   "(JLjava/lang/Object;)V",
	HookSpecialMethodBeforeBody:  "(JLjava/lang/Object;[Ljava/lang/Object;)Ljava/lang/Object;",
	HookSpecialMethodAfterBody:   "(JLjava/lang/Object;[Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;",
	HookLoadClass:                "([Ljava/lang/Object;)Ljava/lang/Class;",
}

// HookDescriptor returns the JVM descriptor of the named hook.
func HookDescriptor(name string) (string, bool) {
	d, ok := hookDescriptors[name]
	return d, ok
}
