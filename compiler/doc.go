/*

Process of compilation

Program Text ->
	front ->
Intermediate Representation (ir) ->
	back ->
Machine Code ->
	elf ->
Binary Executable

With optimization off the front end only filters the source and the
back end walks it one instruction byte at a time; both paths drive the
same arch backend and produce behaviorally equivalent programs.

*/
package compiler
