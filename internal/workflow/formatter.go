package workflow

import (
	"fmt"

	"github.com/kirillm/signal-desk/internal/policy"
)

const (
	es = policy.LangES
	en = policy.LangEN
)

var translations = map[string]map[policy.Lang]string{
	// entry
	"entry_busy":          {es: "⏳ Ya tienes una operación en proceso. Espera a que termine.", en: "⏳ You already have an entry in progress. Wait for it to finish."},
	"entry_title":         {es: "🎯 Crear Nueva Operación", en: "🎯 Create New Trade"},
	"entry_step1":         {es: "**Paso 1/3:** Selecciona el activo que quieres operar", en: "**Step 1/3:** Choose the asset to trade"},
	"entry_side_title":    {es: "🎯 %s - Seleccionar Tipo", en: "🎯 %s - Select Side"},
	"entry_step2":         {es: "**Paso 2/3:** Selecciona el tipo de operación para %s", en: "**Step 2/3:** Choose the side for %s"},
	"side_buy":            {es: "🟢 BUY (Compra)", en: "🟢 BUY"},
	"side_sell":           {es: "🔴 SELL (Venta)", en: "🔴 SELL"},
	"entry_form_title":    {es: "Operación %s %s", en: "Trade %s %s"},
	"input_entry_price":   {es: "💰 Precio de Entrada", en: "💰 Entry Price"},
	"input_tp1":           {es: "🎯 Take Profit 1 (Opcional)", en: "🎯 Take Profit 1 (Optional)"},
	"input_tp2":           {es: "🎯 Take Profit 2 (Opcional)", en: "🎯 Take Profit 2 (Optional)"},
	"input_sl":            {es: "🛡️ Stop Loss (Opcional)", en: "🛡️ Stop Loss (Optional)"},
	"input_notes":         {es: "💬 Notas Importantes (Opcional)", en: "💬 Important Notes (Optional)"},
	"example":             {es: "Ejemplo: %s", en: "Example: %s"},
	"notes_placeholder":   {es: "Escribe aquí cualquier mensaje importante para la comunidad...", en: "Anything the community should know..."},
	"invalid_asset":       {es: "❌ Error: Activo no válido.", en: "❌ Error: Invalid asset."},
	"invalid_side":        {es: "❌ Error: Tipo de orden no válido.", en: "❌ Error: Invalid order type."},
	"entry_missing_asset": {es: "❌ Error: No se encontró el activo seleccionado. Por favor, inicia el proceso nuevamente con `/entry`.", en: "❌ Error: The selected asset was not found. Please start again with `/entry`."},
	"entry_expired":       {es: "❌ Error: No se encontró la información de la operación. Por favor, inicia el proceso nuevamente con `/entry`.", en: "❌ Error: Trade details were not found. Please start again with `/entry`."},
	"invalid_entry_price": {es: "❌ Error: El precio de entrada no es válido.", en: "❌ Error: The entry price is not valid."},
	"invalid_tp1":         {es: "❌ Error: El precio de Take Profit 1 no es válido.", en: "❌ Error: Take Profit 1 is not valid."},
	"invalid_tp2":         {es: "❌ Error: El precio de Take Profit 2 no es válido.", en: "❌ Error: Take Profit 2 is not valid."},
	"invalid_sl":          {es: "❌ Error: El precio de stop loss no es válido.", en: "❌ Error: The stop loss is not valid."},
	"entry_save_failed":   {es: "❌ Error: No se pudo guardar la operación.", en: "❌ Error: The trade could not be saved."},
	"entry_created":       {es: "✅ **Operación creada exitosamente!** Se está publicando al canal...", en: "✅ **Trade created!** Publishing to the channel..."},
	"announce_new":        {es: "Nueva Operación", en: "New Trade"},
	"announce_desc":       {es: "**Tipo:** %s | **Activo:** %s", en: "**Side:** %s | **Asset:** %s"},
	"field_order_type":    {es: "📊 Tipo de Orden", en: "📊 Order Type"},
	"buy_long":            {es: "🟢 COMPRA", en: "🟢 BUY"},
	"sell_long":           {es: "🔴 VENTA", en: "🔴 SELL"},
	"field_entry":         {es: "💰 Precio de Entrada", en: "💰 Entry Price"},
	"field_tp1":           {es: "🎯 Take Profit 1", en: "🎯 Take Profit 1"},
	"field_tp2":           {es: "🎯 Take Profit 2", en: "🎯 Take Profit 2"},
	"field_sl":            {es: "🛡️ Stop Loss", en: "🛡️ Stop Loss"},
	"not_set":             {es: "No establecido", en: "Not set"},
	"field_notes":         {es: "💬 Notas Importantes", en: "💬 Important Notes"},
	"no_notes":            {es: "*Sin notas adicionales*", en: "*No additional notes*"},
	"field_operator":      {es: "👤 Operador", en: "👤 Operator"},

	// update
	"update_busy":          {es: "⏳ Ya tienes una actualización en proceso. Espera a que termine.", en: "⏳ You already have an update in progress. Wait for it to finish."},
	"update_none":          {es: "ℹ️ No hay operaciones activas para actualizar.", en: "ℹ️ There are no active trades to update."},
	"update_title":         {es: "🔄 Actualizar Operación", en: "🔄 Update Trade"},
	"update_step1":         {es: "**Paso 1/2:** Selecciona la operación que quieres actualizar\n\n📊 **Operaciones disponibles:** %d", en: "**Step 1/2:** Choose the trade to update\n\n📊 **Available trades:** %d"},
	"update_list_footer":   {es: "Sistema Interactivo - %d de %d operaciones mostradas", en: "Interactive System - showing %d of %d trades"},
	"op_summary":           {es: "**ID:** `%s`\n**Precio:** %s\n**Estado:** %s", en: "**ID:** `%s`\n**Price:** %s\n**Status:** %s"},
	"update_status_title":  {es: "🔄 Actualizar %s %s", en: "🔄 Update %s %s"},
	"update_step2":         {es: "**Paso 2/2:** Selecciona el nuevo estado para la operación\n\n**Operación:** `%s`", en: "**Step 2/2:** Choose the new status\n\n**Trade:** `%s`"},
	"field_current_status": {es: "📊 Estado Actual", en: "📊 Current Status"},
	"field_entry_short":    {es: "💰 Precio Entrada", en: "💰 Entry"},
	"field_points":         {es: "📏 Puntos", en: "📏 Points"},
	"field_value":          {es: "💵 Valor", en: "💵 Value"},
	"update_status_footer": {es: "Operación: %s | Sistema Interactivo", en: "Trade: %s | Interactive System"},
	"btn_be":               {es: "🔄 BE (Break Even)", en: "🔄 BE (Break Even)"},
	"btn_tp1":              {es: "🎯 TP1", en: "🎯 TP1"},
	"btn_tp2":              {es: "🎯 TP2", en: "🎯 TP2"},
	"btn_tp3":              {es: "🎯 TP3", en: "🎯 TP3"},
	"btn_stopped":          {es: "🛡️ SL (Stop Loss)", en: "🛡️ SL (Stop Loss)"},
	"btn_note":             {es: "📢 Mensaje Importante", en: "📢 Important Message"},
	"op_not_found":         {es: "❌ Error: No se encontró la operación seleccionada.", en: "❌ Error: The selected trade was not found."},
	"update_expired":       {es: "❌ Error: No se encontró la operación seleccionada. Por favor, inicia el proceso nuevamente con `/update`.", en: "❌ Error: The selected trade was not found. Please start again with `/update`."},
	"invalid_status":       {es: "❌ Error: Estado no válido.", en: "❌ Error: Invalid status."},
	"update_failed":        {es: "❌ Error: No se pudo actualizar la operación.", en: "❌ Error: The trade could not be updated."},
	"update_done":          {es: "✅ **Operación actualizada exitosamente!** Se está publicando al canal...", en: "✅ **Trade updated!** Publishing to the channel..."},
	"note_form_title":      {es: "Mensaje Importante - %s", en: "Important Message - %s"},
	"input_note":           {es: "💬 Escribe tu mensaje importante", en: "💬 Write your message"},
	"note_placeholder":     {es: "Este mensaje se publicará en el canal...", en: "This message will be posted to the channel..."},
	"note_empty":           {es: "❌ Error: Debes escribir un mensaje personalizado.", en: "❌ Error: You must write a message."},
	"note_done":            {es: "✅ **Mensaje personalizado enviado exitosamente!**", en: "✅ **Custom message sent!**"},

	// dashboard
	"dashboard_title":   {es: "📊 Dashboard de Operaciones", en: "📊 Trades Dashboard"},
	"dashboard_desc":    {es: "**Resumen de todas las operaciones de trading**", en: "**Summary of all trading operations**"},
	"dashboard_failed":  {es: "❌ Hubo un error al obtener las operaciones. Por favor, inténtalo de nuevo.", en: "❌ Could not load trades. Please try again."},
	"no_operations":     {es: "ℹ️ No hay operaciones registradas.", en: "ℹ️ No trades recorded yet."},
	"field_general":     {es: "📈 Estadísticas Generales", en: "📈 Overview"},
	"general_value":     {es: "**Total:** %d\n**Activas:** %d\n**BE:** %d\n**TP:** %d\n**Cerradas:** %d\n**Stop:** %d", en: "**Total:** %d\n**Active:** %d\n**BE:** %d\n**TP:** %d\n**Closed:** %d\n**Stopped:** %d"},
	"field_by_asset":    {es: "💰 Por Activo", en: "💰 By Asset"},
	"field_by_type":     {es: "📊 Por Tipo", en: "📊 By Side"},
	"btn_active":        {es: "🟢 Activas (%d)", en: "🟢 Active (%d)"},
	"btn_be_count":      {es: "🔄 BE (%d)", en: "🔄 BE (%d)"},
	"btn_tp_count":      {es: "🎯 TP (%d)", en: "🎯 TP (%d)"},
	"btn_closed":        {es: "❌ Cerradas (%d)", en: "❌ Closed (%d)"},
	"btn_stopped_count": {es: "🛡️ Stop (%d)", en: "🛡️ Stopped (%d)"},
	"btn_clear":         {es: "🧹 Limpiar Todas", en: "🧹 Clear All"},
	"btn_refresh":       {es: "🔄 Actualizar", en: "🔄 Refresh"},
	"btn_back":          {es: "🔙 Volver", en: "🔙 Back"},
	"filter_active":     {es: "🟢 Operaciones Activas", en: "🟢 Active Trades"},
	"filter_be":         {es: "🔄 Operaciones en Break Even", en: "🔄 Break Even Trades"},
	"filter_tp":         {es: "🎯 Operaciones con Take Profit", en: "🎯 Take Profit Trades"},
	"filter_closed":     {es: "❌ Operaciones Cerradas", en: "❌ Closed Trades"},
	"filter_stopped":    {es: "🛡️ Operaciones en Stop Loss", en: "🛡️ Stopped Trades"},
	"filter_found":      {es: "**%d operaciones encontradas**", en: "**%d trades found**"},
	"filter_more":       {es: "Mostrando %d de %d operaciones", en: "Showing %d of %d trades"},
	"filter_empty":      {es: "❌ No hay operaciones en la categoría \"%s\".", en: "❌ No trades in category \"%s\"."},
	"unknown_filter":    {es: "❌ Filtro no reconocido: %s", en: "❌ Unknown filter: %s"},
	"clear_title":       {es: "🧹 Confirmar Limpieza", en: "🧹 Confirm Clear"},
	"clear_desc":        {es: "¿Estás seguro de que quieres eliminar **%d** operaciones?\n\n⚠️ **Esta acción no se puede deshacer.**", en: "Are you sure you want to delete **%d** trades?\n\n⚠️ **This cannot be undone.**"},
	"btn_confirm_clear": {es: "✅ Sí, Eliminar Todas", en: "✅ Yes, Delete All"},
	"btn_cancel":        {es: "❌ Cancelar", en: "❌ Cancel"},
	"clear_nothing":     {es: "❌ No hay operaciones para limpiar.", en: "❌ There is nothing to clear."},
	"clear_busy":        {es: "⏳ Ya hay una confirmación de limpieza abierta.", en: "⏳ A clear confirmation is already open."},
	"clear_done_title":  {es: "✅ Limpieza Completada", en: "✅ Clear Completed"},
	"clear_done_desc":   {es: "Todas las operaciones y su historial han sido eliminados exitosamente.\n\n🔄 **El sistema se ha reiniciado completamente.**", en: "All trades and their history were deleted.\n\n🔄 **The system has been reset.**"},
	"clear_cancelled":   {es: "❌ Limpieza cancelada.", en: "❌ Clear cancelled."},
	"clear_expired":     {es: "⌛ La confirmación expiró. Usa `/trades` de nuevo.", en: "⌛ The confirmation expired. Run `/trades` again."},
	"clear_failed":      {es: "❌ Error al limpiar las operaciones. Por favor, inténtalo de nuevo.", en: "❌ Could not clear trades. Please try again."},

	// session
	"session_cleared": {es: "✅ **Sesión limpiada exitosamente**\n\n🧹 Procesos eliminados: %s\n🔄 Ahora puedes usar los comandos normalmente.", en: "✅ **Session cleared**\n\n🧹 Cleared: %s\n🔄 You can use the commands again."},
	"session_none":    {es: "ℹ️ **No hay sesiones activas**\n\nNo tienes ningún proceso bloqueado actualmente.\nPuedes usar los comandos normalmente.", en: "ℹ️ **No active sessions**\n\nNothing is locked for you right now."},

	// about
	"about_title":    {es: "🏛️ Signal Desk", en: "🏛️ Signal Desk"},
	"about_desc":     {es: "🤖 **Sistema de señales de trading**\n\n📊 **Activos soportados:** %s", en: "🤖 **Trading signals desk**\n\n📊 **Supported assets:** %s"},
	"field_uptime":   {es: "⏱️ Uptime", en: "⏱️ Uptime"},
	"field_commands": {es: "📋 Comandos", en: "📋 Commands"},

	// router
	"interaction_expired": {es: "⌛ Esta interacción expiró. Inicia el proceso nuevamente con `/%s`.", en: "⌛ This interaction expired. Start again with `/%s`."},
	"generic_error":       {es: "❌ Hubo un error procesando tu selección. Por favor, inténtalo de nuevo.", en: "❌ Something went wrong. Please try again."},
	"unknown_action":      {es: "❌ Acción no reconocida.", en: "❌ Unknown action."},
	"unknown_command":     {es: "❌ Comando no reconocido.", en: "❌ Unknown command."},
	"admin_required":      {es: "❌ Solo los administradores pueden usar este comando.", en: "❌ Only administrators can use this command."},
}

// Formatter переводит тексты пользовательского интерфейса
type Formatter struct {
	lang policy.Lang
}

// NewFormatter создает форматтер для языка
func NewFormatter(lang policy.Lang) *Formatter {
	return &Formatter{lang: policy.ParseLang(string(lang))}
}

// Lang текущий язык
func (f *Formatter) Lang() policy.Lang {
	return f.lang
}

// T переводит строку
func (f *Formatter) T(key string) string {
	if trans, ok := translations[key]; ok {
		if val, ok := trans[f.lang]; ok {
			return val
		}
	}
	return key
}

// Tf переводит строку-шаблон и подставляет аргументы
func (f *Formatter) Tf(key string, args ...any) string {
	return fmt.Sprintf(f.T(key), args...)
}
